// Command paydesk runs the payment desk bot.
package main

import (
	"log"

	corebootstrap "github.com/m3rciful/paydesk/core/bootstrap"
	corecmd "github.com/m3rciful/paydesk/core/cmd"
	"github.com/m3rciful/paydesk/internal/bot"
	"github.com/m3rciful/paydesk/internal/config"
)

func main() {
	err := corecmd.Run(corecmd.Options{
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			return config.Load(path)
		},
		Bootstrap: func(carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
			cfg := carrier.(*config.Config)
			res, err := corebootstrap.Run(corebootstrap.Options{
				Config:          cfg.CoreConfig(),
				Database:        cfg.Database,
				DisableDatabase: cfg.Storage.Driver == config.StorageMemory,
			})
			if err != nil {
				return nil, err
			}
			app, err := bot.New(cfg, res.DB)
			if err != nil {
				_ = res.Close()
				return nil, err
			}
			return app, nil
		},
	})
	if err != nil {
		log.Fatal(err)
	}
}
