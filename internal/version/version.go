package version

import "fmt"

// Service — имя сервиса для health-ответов и стартовых логов.
const Service = "fulfillment-service"

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Info возвращает версию сборки, заполняемую через -ldflags.
func Info() (v, c, d string) { return version, commit, date }

// String собирает строку версии для логов и health-ответа.
func String() string {
	return fmt.Sprintf("%s version=%s commit=%s date=%s", Service, version, commit, date)
}
