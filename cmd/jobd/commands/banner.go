package commands

import (
	"fmt"

	"github.com/pterm/pterm"

	"github.com/teranos/jobd/am"
	"github.com/teranos/jobd/logger"
	"github.com/teranos/jobd/version"
)

// printStartupBanner prints the user-friendly startup message
func printStartupBanner(cfg *am.Config, configPath string, watching bool) {
	versionInfo := version.Get()

	pterm.DefaultHeader.WithFullWidth().Println("jobd " + versionInfo.Version)

	pterm.Printf("%s %s (commit %s)\n", pterm.Gray("Version:   "), versionInfo.Version, versionInfo.Short())
	pterm.Printf("%s %s\n", pterm.Gray("Built:     "), versionInfo.BuildTime)
	pterm.Printf("%s %s\n", pterm.Gray("Listening: "), pterm.LightCyan("http://"+cfg.Server.Addr()))
	pterm.Printf("%s %s\n", pterm.Gray("Log level: "), logger.Level())
	pterm.Printf("%s ttl %s, max %s jobs, run timeout %s\n", pterm.Gray("Retention: "),
		pterm.Yellow(cfg.Jobs.TTL()),
		pterm.Yellow(fmt.Sprintf("%d", cfg.Jobs.MaxItems)),
		pterm.Yellow(cfg.Jobs.RunTimeout()))

	switch {
	case configPath == "":
		pterm.Printf("%s %s\n", pterm.Gray("Config:    "), "defaults and environment only")
	case watching:
		pterm.Printf("%s %s %s\n", pterm.Gray("Config:    "), configPath, pterm.Green("(watching)"))
	default:
		pterm.Printf("%s %s\n", pterm.Gray("Config:    "), configPath)
	}

	pterm.Println()
	pterm.Info.Println("Press Ctrl+C to stop")
}
