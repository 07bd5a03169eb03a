package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // school timezone must resolve on minimal images

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Env              string // DEV (local; default), TEST, QA, PROD
		Build            string
		Debug            bool
		TestMode         bool
		AppName          string
		SecretKey        string
		WorkDir          string
		Timezone         string
		Location         *time.Location // school timezone; "today" is computed here
		DefaultFromEmail mail.Address
		RollbarToken     string
		SendgridApiKey   string

		Server     ServerConfig
		Database   DatabaseConfig
		Storage    StorageConfig
		Attendance AttendanceConfig
	}

	ServerConfig struct {
		Host               string
		Address            string
		DebugHost          string
		ShutdownTimeout    time.Duration
		JWTExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	StorageConfig struct {
		Driver            string // local | oss
		LocalDir          string
		PublicBaseURL     string
		OSSEndpoint       string
		OSSAccessKeyID    string
		OSSAccessSecret   string
		OSSBucket         string
		OSSPrefix         string
		PhotoMaxDimension int
		PhotoMaxPixels    int // decoded width*height limit
		MaxUploadSize     int64
	}

	AttendanceConfig struct {
		OpTimeout        time.Duration
		FinalizeAbsences bool
		FinalizeSchedule string
		GateSecret       string // enables TOTP gate codes on check-in/out when set
		TrendMaxDays     int
	}
)

func (dc DatabaseConfig) Address() string {
	return net.JoinHostPort(dc.Host, strconv.Itoa(dc.Port))
}

// NewConfig loads the configuration from defaults, the optional `config/.env.<env>` file and the environment.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("build", "develop")
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "Absensi")
	v.SetDefault("secretKey", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("timezone", "Asia/Jakarta")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "absensi")
	v.SetDefault("database.user", "absensi")
	v.SetDefault("database.password", "absensi")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "postgres")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.localDir", "media")
	v.SetDefault("storage.publicBaseURL", "/media")
	v.SetDefault("storage.ossEndpoint", "")
	v.SetDefault("storage.ossAccessKeyID", "")
	v.SetDefault("storage.ossAccessSecret", "")
	v.SetDefault("storage.ossBucket", "")
	v.SetDefault("storage.ossPrefix", "absensi")
	v.SetDefault("storage.photoMaxDimension", 800)
	v.SetDefault("storage.photoMaxPixels", 24_000_000)
	v.SetDefault("storage.maxUploadSize", int64(2*1024*1024))

	v.SetDefault("attendance.opTimeout", 5*time.Second)
	v.SetDefault("attendance.finalizeAbsences", false)
	v.SetDefault("attendance.finalizeSchedule", "5 0 * * *")
	v.SetDefault("attendance.gateSecret", "")
	v.SetDefault("attendance.trendMaxDays", 90)

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	wd := Getwd()
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	conf := &Config{
		Env:            env,
		Build:          v.GetString("build"),
		Debug:          v.GetBool("debug"),
		TestMode:       v.GetBool("testMode"),
		AppName:        v.GetString("appName"),
		SecretKey:      v.GetString("secretKey"),
		WorkDir:        wd,
		Timezone:       v.GetString("timezone"),
		RollbarToken:   v.GetString("rollbarToken"),
		SendgridApiKey: v.GetString("sendgridApiKey"),
		Server: ServerConfig{
			Host:               v.GetString("server.host"),
			Address:            v.GetString("server.address"),
			DebugHost:          v.GetString("server.debugHost"),
			ShutdownTimeout:    v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta: v.GetDuration("server.jwtExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Storage: StorageConfig{
			Driver:            v.GetString("storage.driver"),
			LocalDir:          v.GetString("storage.localDir"),
			PublicBaseURL:     v.GetString("storage.publicBaseURL"),
			OSSEndpoint:       v.GetString("storage.ossEndpoint"),
			OSSAccessKeyID:    v.GetString("storage.ossAccessKeyID"),
			OSSAccessSecret:   v.GetString("storage.ossAccessSecret"),
			OSSBucket:         v.GetString("storage.ossBucket"),
			OSSPrefix:         v.GetString("storage.ossPrefix"),
			PhotoMaxDimension: v.GetInt("storage.photoMaxDimension"),
			PhotoMaxPixels:    v.GetInt("storage.photoMaxPixels"),
			MaxUploadSize:     v.GetInt64("storage.maxUploadSize"),
		},
		Attendance: AttendanceConfig{
			OpTimeout:        v.GetDuration("attendance.opTimeout"),
			FinalizeAbsences: v.GetBool("attendance.finalizeAbsences"),
			FinalizeSchedule: v.GetString("attendance.finalizeSchedule"),
			GateSecret:       v.GetString("attendance.gateSecret"),
			TrendMaxDays:     v.GetInt("attendance.trendMaxDays"),
		},
	}

	if from, err := mail.ParseAddress(v.GetString("defaultFromEmail")); err == nil {
		conf.DefaultFromEmail = *from
	} else {
		conf.DefaultFromEmail = mail.Address{Address: v.GetString("defaultFromEmail")}
	}

	loc, err := time.LoadLocation(conf.Timezone)
	if err != nil {
		log.Fatalf("config.time.LoadLocation(%s): %v", conf.Timezone, err)
	}
	conf.Location = loc
	return conf
}

// Getwd finds the project root: the closest parent directory holding a go.mod file.
// go-test changes the working directory to the package being tested, hence the walk up.
// Falls back to the working directory when no go.mod is found (e.g. deployed binaries).
func Getwd() string {
	wd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}
	currDir := wd
	for {
		if fi, err := os.Stat(filepath.Join(currDir, "go.mod")); err == nil && !fi.IsDir() {
			return currDir
		}
		newDir := filepath.Dir(currDir)
		if newDir == string(os.PathSeparator) || newDir == currDir {
			return wd
		}
		currDir = newDir
	}
}
