package middleware

import (
	"errors"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
)

// AdminRealm Basic Auth 的 realm.
const AdminRealm = "octavia admin"

// LoadAccounts 从凭证文件（yaml/json/toml）读取 用户名 -> 密码 映射.
// 文件不存在时返回 (nil, nil)，调用方据此决定是否注册管理路由.
// 注意：viper 会把键转为小写，用户名因此不区分大小写.
func LoadAccounts(path string) (gin.Accounts, error) {
	if path == "" {
		return nil, nil
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read credentials %s: %w", path, err)
	}

	accounts := gin.Accounts{}

	for _, user := range v.AllKeys() {
		pass := v.GetString(user)
		if user == "" || pass == "" {
			continue
		}

		accounts[user] = pass
	}

	if len(accounts) == 0 {
		return nil, fmt.Errorf("credentials %s: no usable accounts", path)
	}

	return accounts, nil
}

// BasicAuthMiddleware 基于共享凭证的 Basic Auth 门禁.
func BasicAuthMiddleware(accounts gin.Accounts) gin.HandlerFunc {
	return gin.BasicAuthForRealm(accounts, AdminRealm)
}
