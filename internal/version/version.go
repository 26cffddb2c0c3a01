package version

import "fmt"

// Заполняются при сборке: -ldflags "-X github.com/vladislavdragonenkov/myshop/internal/version.version=v1.2.3".
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Info returns version information populated via -ldflags.
func Info() (v, c, d string) { return version, commit, date }

// GetVersion возвращает версию сборки; её показывают /healthz и лог старта.
func GetVersion() string { return version }

// GetCommit возвращает commit сборки.
func GetCommit() string { return commit }

// GetDate возвращает дату сборки.
func GetDate() string { return date }

func String() string {
	return fmt.Sprintf("myshop version=%s commit=%s date=%s", version, commit, date)
}
