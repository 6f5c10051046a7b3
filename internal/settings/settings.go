package settings

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	StoreSQLite = "sqlite"
	StoreFile   = "file"
)

func NewSettings() *AppSettings {
	settings := AppSettings{
		Host:        getEnvOrDefault("CIJOE_HOST", "0.0.0.0"),
		Port:        getEnvOrDefault("CIJOE_PORT", ":4567"),
		ProjectPath: getEnvOrDefault("CIJOE_PROJECT_PATH", "."),
		Store:       getEnvOrDefault("CIJOE_STORE", StoreSQLite),
		OrphanCheckInterval: time.Duration(
			getIntEnvOrDefault("CIJOE_ORPHAN_CHECK_SECONDS", 30),
		) * time.Second,
	}
	settings.Port = normalizePort(settings.Port)
	return &settings
}

func getEnvOrDefault(key, defaultValue string) string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}
	return value
}

func getIntEnvOrDefault(key string, defaultValue int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("err parsing %s, using %d: %+v\n", key, defaultValue, err)
		return defaultValue
	}
	return i
}

func normalizePort(port string) string {
	if !strings.HasPrefix(port, ":") {
		return ":" + port
	}
	return port
}

type AppSettings struct {
	Host                string
	Port                string
	ProjectPath         string
	Store               string
	OrphanCheckInterval time.Duration
}

func (as *AppSettings) SetPort(port int) {
	as.Port = normalizePort(strconv.Itoa(port))
}

func (as *AppSettings) Address() string {
	return as.Host + as.Port
}

func (as *AppSettings) BaseURL() string {
	return fmt.Sprintf("http://%s", as.Address())
}

// ReadDotenv loads KEY=value lines into the process environment. A missing
// file is not an error.
func ReadDotenv(path string) {
	re := regexp.MustCompile(`^[^0-9][A-Z0-9_]+=.+$`)
	f, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Println("err opening dotenv:", err)
		}
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) > 0 && line[0] != '#' && re.Match(line) {
			name, value, _ := strings.Cut(string(line), "=")
			name = strings.TrimSpace(name)
			value = strings.TrimSpace(value)
			value = strings.Trim(value, `"`)
			os.Setenv(name, value)
		}
	}
}
