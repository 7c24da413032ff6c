package config

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"

	"WeeklyIngest/internal/record"
)

// ErrMissingKey marks a required key that is absent or empty.
var ErrMissingKey = errors.New("missing required config key")

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

type Settings struct {
	Database Database
	Access   Access
	Target   Target
	Schedule Schedule
	Log      Log
	Status   Status
}

type Database struct {
	Driver   string
	Username string
	Password string
	Host     string
	Port     int
	Name     string
	Path     string // sqlite file
}

type Access struct {
	Endpoint string
	Username string
	Password string
	DataPath string
}

type Target struct {
	Table          string
	Columns        []string
	Fields         []string
	Keys           []string
	UpdatedColumn  string
	InsertedColumn string
	MaxRowFailures int
}

type Schedule struct {
	Weekday  time.Weekday
	Hour     int
	Minute   int
	Location *time.Location
}

type Log struct {
	Level  string
	Pretty bool
}

type Status struct {
	Addr          string
	RatePerMinute int
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Path returns the config file location: INGEST_CONFIG, or config.ini beside the executable.
func Path() string {
	if p := os.Getenv("INGEST_CONFIG"); p != "" {
		return p
	}
	exe, err := os.Executable()
	if err != nil {
		return "config.ini"
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Join(filepath.Dir(exe), "config.ini")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", DriverMySQL)
	v.SetDefault("database.name", "ingest")
	v.SetDefault("target.table", "ingested_rows")
	v.SetDefault("target.columns", "Col1,Col2,Col3")
	v.SetDefault("target.updated_column", "UpdatedAt")
	v.SetDefault("target.inserted_column", "InsertedAt")
	v.SetDefault("target.max_row_failures", 0)
	v.SetDefault("schedule.weekday", "monday")
	v.SetDefault("schedule.time", "16:00")
	v.SetDefault("schedule.timezone", "Europe/Warsaw")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("status.rate_per_minute", 60)
}

// Load reads the INI file at path. INGEST_<SECTION>_<KEY> environment
// variables override file values. Any error is fatal for the caller.
func Load(path string) (Settings, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("ini")
	v.SetEnvPrefix("INGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Settings{}, errors.Wrapf(err, "read config %s", path)
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (Settings, error) {
	var s Settings
	var err error

	// ─── access ───
	if s.Access.Endpoint, err = required(v, "access.endpoint"); err != nil {
		return Settings{}, err
	}
	s.Access.Endpoint = strings.TrimRight(s.Access.Endpoint, "/")
	if s.Access.Username, err = required(v, "access.username"); err != nil {
		return Settings{}, err
	}
	if s.Access.Password, err = required(v, "access.password"); err != nil {
		return Settings{}, err
	}
	s.Access.DataPath = strings.TrimSpace(v.GetString("access.data_path"))

	// ─── database ───
	if s.Database, err = database(v); err != nil {
		return Settings{}, err
	}

	// ─── target ───
	if s.Target, err = target(v); err != nil {
		return Settings{}, err
	}

	// ─── schedule ───
	if s.Schedule, err = schedule(v); err != nil {
		return Settings{}, err
	}

	s.Log = Log{
		Level:  strings.ToLower(v.GetString("log.level")),
		Pretty: v.GetBool("log.pretty"),
	}
	s.Status = Status{
		Addr:          strings.TrimSpace(v.GetString("status.addr")),
		RatePerMinute: v.GetInt("status.rate_per_minute"),
	}
	if s.Status.RatePerMinute <= 0 {
		return Settings{}, errors.Newf("status.rate_per_minute must be > 0, got %d", s.Status.RatePerMinute)
	}
	return s, nil
}

func database(v *viper.Viper) (Database, error) {
	d := Database{
		Driver: strings.ToLower(strings.TrimSpace(v.GetString("database.driver"))),
		Name:   v.GetString("database.name"),
		Path:   v.GetString("database.path"),
	}

	if d.Driver == "mariadb" {
		d.Driver = DriverMySQL
	}

	switch d.Driver {
	case DriverSQLite:
		if d.Path == "" {
			return Database{}, errors.Mark(errors.Newf("%s: database.path", ErrMissingKey), ErrMissingKey)
		}
		return d, nil
	case DriverMySQL, DriverMongo:
	default:
		return Database{}, errors.Newf("unsupported database.driver %q", d.Driver)
	}

	var err error
	if d.Username, err = required(v, "database.username"); err != nil {
		return Database{}, err
	}
	if d.Password, err = required(v, "database.password"); err != nil {
		return Database{}, err
	}
	if d.Host, err = required(v, "database.host"); err != nil {
		return Database{}, err
	}
	port, err := required(v, "database.port")
	if err != nil {
		return Database{}, err
	}
	if d.Port, err = strconv.Atoi(port); err != nil {
		return Database{}, errors.Wrapf(err, "database.port %q", port)
	}
	return d, nil
}

// Record returns the table description the writers work with.
func (t Target) Record() record.Target {
	return record.Target{
		Table:          t.Table,
		Columns:        t.Columns,
		Fields:         t.Fields,
		Keys:           t.Keys,
		UpdatedColumn:  t.UpdatedColumn,
		InsertedColumn: t.InsertedColumn,
	}
}

func target(v *viper.Viper) (Target, error) {
	t := Target{
		Table:          v.GetString("target.table"),
		Columns:        splitList(v.GetString("target.columns")),
		Fields:         splitList(v.GetString("target.fields")),
		Keys:           splitList(v.GetString("target.keys")),
		UpdatedColumn:  v.GetString("target.updated_column"),
		InsertedColumn: v.GetString("target.inserted_column"),
		MaxRowFailures: v.GetInt("target.max_row_failures"),
	}
	if len(t.Columns) == 0 {
		return Target{}, errors.New("target.columns is empty")
	}
	if len(t.Fields) == 0 {
		t.Fields = t.Columns
	}
	if len(t.Fields) != len(t.Columns) {
		return Target{}, errors.Newf("target.fields has %d entries, target.columns has %d", len(t.Fields), len(t.Columns))
	}
	if len(t.Keys) == 0 {
		t.Keys = t.Columns[:1]
	}
	if t.MaxRowFailures < 0 {
		return Target{}, errors.Newf("target.max_row_failures must be >= 0, got %d", t.MaxRowFailures)
	}

	idents := append([]string{t.Table, t.UpdatedColumn, t.InsertedColumn}, t.Columns...)
	for _, id := range idents {
		if !identRe.MatchString(id) {
			return Target{}, errors.Newf("invalid identifier %q", id)
		}
	}
	for _, k := range t.Keys {
		if !contains(t.Columns, k) {
			return Target{}, errors.Newf("target.keys: %q is not in target.columns", k)
		}
	}
	return t, nil
}

func schedule(v *viper.Viper) (Schedule, error) {
	var s Schedule
	wd, err := ParseWeekday(v.GetString("schedule.weekday"))
	if err != nil {
		return Schedule{}, err
	}
	s.Weekday = wd

	at, err := time.Parse("15:04", strings.TrimSpace(v.GetString("schedule.time")))
	if err != nil {
		return Schedule{}, errors.Wrap(err, "schedule.time")
	}
	s.Hour, s.Minute = at.Hour(), at.Minute()

	if s.Location, err = time.LoadLocation(v.GetString("schedule.timezone")); err != nil {
		return Schedule{}, errors.Wrap(err, "schedule.timezone")
	}
	return s, nil
}

// ParseWeekday accepts full or three-letter English day names, any case.
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d, nil
		}
	}
	return 0, errors.Newf("unknown weekday %q", s)
}

func required(v *viper.Viper, key string) (string, error) {
	val := strings.TrimSpace(v.GetString(key))
	if val == "" {
		return "", errors.Mark(errors.Newf("%s: %s", ErrMissingKey, key), ErrMissingKey)
	}
	return val, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
