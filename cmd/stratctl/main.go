// stratctl 在命令行里管理策略：列表、新建、编辑、启停与删除。
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
	"github.com/joho/godotenv"
)

var (
	configPath = flag.String("config", "", "配置文件路径（支持 .yaml, .yml, .json）")
	apiURL     = flag.String("api", "", "后端 API 地址，覆盖配置")
	verbose    = flag.Bool("v", false, "输出 debug 日志")
)

func main() {
	_ = godotenv.Load()

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	for _, c := range commands {
		commander.Register(c, "strategies")
	}

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
