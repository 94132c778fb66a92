package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Ошибка разбора денежной суммы из десятичной строки.
var ErrAmountInvalid = errors.New("amount has invalid format")

// ParseAmountMinor переводит десятичную строку ("123.45") в минимальные денежные
// единицы. Внутри домена суммы хранятся как int64 minor units; десятичная форма
// живёт только на границе команд и уведомлений.
func ParseAmountMinor(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrAmountInvalid
	}

	neg := false
	if s[0] == '-' {
		neg = true
		s = s[1:]
	}

	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" || len(frac) > 2 {
		return 0, ErrAmountInvalid
	}
	// Дополняем дробную часть до двух знаков: "1.5" — это 150 minor units.
	for len(frac) < 2 {
		frac += "0"
	}

	var minor int64
	for _, r := range whole + frac {
		if r < '0' || r > '9' {
			return 0, ErrAmountInvalid
		}
		// Проверка переполнения до умножения: wrap мимо нуля может дать
		// положительное число, пост-фактум проверка знака его не ловит.
		digit := int64(r - '0')
		if minor > math.MaxInt64/10 || (minor == math.MaxInt64/10 && digit > math.MaxInt64%10) {
			return 0, ErrAmountInvalid
		}
		minor = minor*10 + digit
	}

	if neg {
		minor = -minor
	}
	return minor, nil
}

// FormatAmountMinor возвращает десятичное представление суммы в minor units.
func FormatAmountMinor(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}
