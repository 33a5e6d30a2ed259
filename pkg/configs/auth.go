package configs

import "github.com/spf13/viper"

// AuthConfig 管理接口的 Basic Auth、会话签名密钥与主删除密钥.
type AuthConfig struct {
	// CredentialsFile 用户名到密码的映射文件（yaml/json/toml），存在时才注册 /admin 路由
	CredentialsFile string `mapstructure:"credentials_file"`
	// SessionSecret 会话 cookie 的签名密钥，为空时启动时随机生成（重启后旧会话失效）
	SessionSecret string `mapstructure:"session_secret"`
	// SessionCookie 会话 cookie 名称
	SessionCookie string `mapstructure:"session_cookie" rule:"required"`
	// MasterKey 主删除密钥，可删除任意曲目；为空表示禁用
	MasterKey string `mapstructure:"master_key"`
	// SecureCookie 仅在 HTTPS 下发送会话 cookie
	SecureCookie bool `mapstructure:"secure_cookie"`
}

func (c *AuthConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("auth.credentials_file", "users.yml")
	v.SetDefault("auth.session_secret", "")
	v.SetDefault("auth.session_cookie", "octavia_session")
	v.SetDefault("auth.master_key", "")
	v.SetDefault("auth.secure_cookie", false)
}
