package main

import "github.com/killallgit/voxlog/cmd"

// @title           voxlog status API
// @version         1.0.0
// @description     Read-only view of voice journaling sessions captured over Telegram
// @contact.name    API Support
// @contact.url     https://github.com/killallgit/voxlog
// @license.name    MIT
// @license.url     https://opensource.org/licenses/MIT
// @host            localhost:8080
// @BasePath        /
// @schemes         http
// @securityDefinitions.apikey  ApiKeyAuth
// @in                          header
// @name                        Authorization
// @description                 Bearer token configured as server.api_token
func main() {
	cmd.Execute()
}
