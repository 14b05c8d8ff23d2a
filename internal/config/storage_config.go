package config

type StorageConfig interface {
	GetStorageDriver() string
	GetStoragePath() string
	GetAccessTokenKey() string
	GetAccessExpiresAtKey() string
	GetRefreshTokenKey() string
	GetRefreshExpiresAtKey() string
	GetProfileKey() string
}

const (
	StorageDriverMemory = "memory"
	StorageDriverFile   = "file"
	StorageDriverSQLite = "sqlite"
)

type storageFile struct {
	Driver              string `toml:"driver"`
	Path                string `toml:"path"`
	AccessTokenKey      string `toml:"access_token_key"`
	AccessExpiresAtKey  string `toml:"access_expires_at_key"`
	RefreshTokenKey     string `toml:"refresh_token_key"`
	RefreshExpiresAtKey string `toml:"refresh_expires_at_key"`
	ProfileKey          string `toml:"profile_key"`
}

type Storage struct {
	file *storageFile
}

var _ StorageConfig = Storage{file: &storageFile{}}

func (s Storage) GetStorageDriver() string {
	return GetEnv("STORAGE_DRIVER", s.file.Driver, StorageDriverFile)
}

func (s Storage) GetStoragePath() string {
	return GetEnv("STORAGE_PATH", s.file.Path, "./data/session.json")
}

func (s Storage) GetAccessTokenKey() string {
	return GetEnv("STORAGE_KEY_ACCESS_TOKEN", s.file.AccessTokenKey, "access_token")
}

func (s Storage) GetAccessExpiresAtKey() string {
	return GetEnv("STORAGE_KEY_ACCESS_EXPIRES_AT", s.file.AccessExpiresAtKey, "access_token_expires_at")
}

func (s Storage) GetRefreshTokenKey() string {
	return GetEnv("STORAGE_KEY_REFRESH_TOKEN", s.file.RefreshTokenKey, "refresh_token")
}

func (s Storage) GetRefreshExpiresAtKey() string {
	return GetEnv("STORAGE_KEY_REFRESH_EXPIRES_AT", s.file.RefreshExpiresAtKey, "refresh_token_expires_at")
}

func (s Storage) GetProfileKey() string {
	return GetEnv("STORAGE_KEY_PROFILE", s.file.ProfileKey, "session_profile")
}
