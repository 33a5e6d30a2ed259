package configs

// AppVersion 应用版本号，发布时通过 -ldflags 覆盖.
var AppVersion = "0.3.0"
