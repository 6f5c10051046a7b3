package internal

const (
	DotEnvPath        = "./.env"
	ConfigFile        = "config.json"
	MigrationsDir     = "migrations"
	DBTimestampLayout = "2006-01-02T15:04:05.999999999Z07:00"
	HooksDir          = ".git/hooks"

	DefaultBranch        = "master"
	DefaultRunnerCommand = "rake -s test:units"
)
