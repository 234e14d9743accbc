package config // package config loads application configuration from environment variables

import (
    "fmt"     // fmt formats validation errors
    "os"      // os provides access to environment variables
    "strings" // strings splits list-valued variables
    "time"    // time parses durations

    "github.com/joho/godotenv" // godotenv loads a local .env file into the environment

    "github.com/iliyamo/election-voting-portal/internal/model"
)

// Supported values for DB_DRIVER.
const (
    DriverMySQL  = "mysql"
    DriverSQLite = "sqlite"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
    Env  string // application environment (e.g. "dev", "prod")
    Port string // HTTP port to listen on

    DBDriver    string // mysql | sqlite
    DBUser      string // database username
    DBPass      string // database password (optional)
    DBHost      string // database host address
    DBPort      string // database port number
    DBName      string // database name
    DBPath      string // sqlite file path
    AutoMigrate bool   // apply migrations when the server starts

    JWTSecret      string // secret used to sign JWTs
    AccessTTLMin   int    // access token time-to-live in minutes
    RefreshTTLDays int    // refresh token time-to-live in days
    BcryptCost     int    // bcrypt cost for password hashing

    OTPTTL            time.Duration // validity of issued one-time codes
    OTPEchoInResponse bool          // return OTP codes in API responses and logs (development only)
    LockoutThreshold  int           // consecutive failures before an account is locked
    LockoutDuration   time.Duration // how long a locked account stays locked
    SecondFactorRoles []model.Role  // roles that must confirm a login OTP
    VoteRequireOTP    bool          // voters confirm each ballot with a vote OTP

    SweepInterval  time.Duration  // lifecycle sweep period
    ReportLocation *time.Location // timezone for hourly vote trends
    RequestTimeout time.Duration  // deadline applied to every HTTP request

    AMQPURL string // RabbitMQ URL; empty keeps events in process

    LogLevel  string
    LogFormat string
    LogFile   string
}

// IsDev reports whether the service runs in development mode.
func (c Config) IsDev() bool { return strings.EqualFold(c.Env, "dev") }

// RequiresSecondFactor reports whether logins for role must be confirmed by OTP.
func (c Config) RequiresSecondFactor(role model.Role) bool {
    for _, r := range c.SecondFactorRoles {
        if r == role {
            return true
        }
    }
    return false
}

// LoadDotEnv loads variables from the given files (default ".env") when they
// exist.  Variables already present in the environment win.
func LoadDotEnv(files ...string) {
    if len(files) == 0 {
        files = []string{".env"}
    }
    for _, f := range files {
        if _, err := os.Stat(f); err == nil {
            _ = godotenv.Load(f)
        }
    }
}

// Load reads configuration values from environment variables and returns a
// Config.  Missing required variables are reported together in the error.
func Load() (Config, error) {
    cfg := Config{
        Env:  envStr("APP_ENV", "prod"),
        Port: envStr("APP_PORT", "8080"),

        DBDriver:    strings.ToLower(envStr("DB_DRIVER", DriverMySQL)),
        DBUser:      os.Getenv("DB_USER"),
        DBPass:      os.Getenv("DB_PASS"),
        DBHost:      envStr("DB_HOST", "127.0.0.1"),
        DBPort:      envStr("DB_PORT", "3306"),
        DBName:      os.Getenv("DB_NAME"),
        DBPath:      envStr("DB_PATH", "evoting.db"),
        AutoMigrate: envBool("DB_AUTO_MIGRATE", true),

        JWTSecret:      os.Getenv("JWT_SECRET"),
        AccessTTLMin:   envInt("ACCESS_TOKEN_TTL_MIN", 15),
        RefreshTTLDays: envInt("REFRESH_TOKEN_TTL_DAYS", 7),
        BcryptCost:     envInt("BCRYPT_COST", 12),

        OTPTTL:            envDur("OTP_TTL", 5*time.Minute),
        OTPEchoInResponse: envBool("OTP_ECHO_IN_RESPONSE", false),
        LockoutThreshold:  envInt("LOCKOUT_THRESHOLD", 5),
        LockoutDuration:   envDur("LOCKOUT_DURATION", 15*time.Minute),
        VoteRequireOTP:    envBool("VOTE_REQUIRE_OTP", true),

        SweepInterval:  envDur("LIFECYCLE_SWEEP_INTERVAL", time.Minute),
        RequestTimeout: envDur("REQUEST_TIMEOUT", 5*time.Second),

        AMQPURL: firstNonEmpty(os.Getenv("RABBITMQ_URL"), os.Getenv("AMQP_URL")),

        LogLevel:  envStr("LOG_LEVEL", "info"),
        LogFormat: envStr("LOG_FORMAT", "text"),
        LogFile:   os.Getenv("LOG_FILE"),
    }

    roles, err := parseRoles(envStr("SECOND_FACTOR_ROLES", "voter,election_officer,observer"))
    if err != nil {
        return Config{}, err
    }
    cfg.SecondFactorRoles = roles

    loc, err := time.LoadLocation(envStr("REPORT_TIMEZONE", "UTC"))
    if err != nil {
        return Config{}, fmt.Errorf("invalid REPORT_TIMEZONE: %w", err)
    }
    cfg.ReportLocation = loc

    if err := cfg.validate(); err != nil {
        return Config{}, err
    }
    return cfg, nil
}

// LoadDatabase reads only the variables needed to open the database.  It is
// used by CLI commands that do not serve HTTP.
func LoadDatabase() (Config, error) {
    cfg := Config{
        DBDriver: strings.ToLower(envStr("DB_DRIVER", DriverMySQL)),
        DBUser:   os.Getenv("DB_USER"),
        DBPass:   os.Getenv("DB_PASS"),
        DBHost:   envStr("DB_HOST", "127.0.0.1"),
        DBPort:   envStr("DB_PORT", "3306"),
        DBName:   os.Getenv("DB_NAME"),
        DBPath:   envStr("DB_PATH", "evoting.db"),
    }
    return cfg, cfg.validateDatabase()
}

func (c Config) validate() error {
    if err := c.validateDatabase(); err != nil {
        return err
    }
    var missing []string
    if c.JWTSecret == "" {
        missing = append(missing, "JWT_SECRET")
    }
    if len(missing) > 0 {
        return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
    }
    if c.LockoutThreshold < 1 {
        return fmt.Errorf("LOCKOUT_THRESHOLD must be positive, got %d", c.LockoutThreshold)
    }
    if c.OTPTTL <= 0 {
        return fmt.Errorf("OTP_TTL must be positive")
    }
    if c.SweepInterval <= 0 {
        return fmt.Errorf("LIFECYCLE_SWEEP_INTERVAL must be positive")
    }
    return nil
}

func (c Config) validateDatabase() error {
    switch c.DBDriver {
    case DriverMySQL:
        var missing []string
        if c.DBUser == "" {
            missing = append(missing, "DB_USER")
        }
        if c.DBName == "" {
            missing = append(missing, "DB_NAME")
        }
        if len(missing) > 0 {
            return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
        }
    case DriverSQLite:
        if c.DBPath == "" {
            return fmt.Errorf("missing required env var: DB_PATH")
        }
    default:
        return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
    }
    return nil
}

func parseRoles(s string) ([]model.Role, error) {
    var out []model.Role
    for _, p := range strings.Split(s, ",") {
        p = strings.TrimSpace(p)
        if p == "" {
            continue
        }
        r, err := model.ParseRole(p)
        if err != nil {
            return nil, fmt.Errorf("SECOND_FACTOR_ROLES: %w", err)
        }
        out = append(out, r)
    }
    return out, nil
}

func firstNonEmpty(vals ...string) string {
    for _, v := range vals {
        if v != "" {
            return v
        }
    }
    return ""
}
