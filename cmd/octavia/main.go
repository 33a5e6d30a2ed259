// Package main 启动应用程序
package main

import (
	"os"

	"github.com/yeisme/octavia/pkg/cmd"
)

//	@title			Octavia API
//	@version		1.0
//	@description	Octavia 是一个音频分享服务：上传带标签的音频，获得有保留期限的分享页面与下载链接。

//	@license.name	MIT
//	@license.url	https://opensource.org/license/mit/

//	@securityDefinitions.basic	BasicAuth

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
