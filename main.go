package main

import (
	"flag"

	"github.com/golang/glog"
	"github.com/prebid/prebid-headertag/config"
	"github.com/prebid/prebid-headertag/router"
	"github.com/prebid/prebid-headertag/server"
	"github.com/spf13/viper"
)

func main() {
	flag.Parse() // required for glog flags and testing package flags

	cfg, err := loadConfig()
	if err != nil {
		glog.Exitf("Configuration could not be loaded or did not pass validation: %v", err)
	}

	err = serve(cfg)
	if err != nil {
		glog.Exitf("prebid-headertag failed: %v", err)
	}
}

const configFileName = "headertag"

func loadConfig() (*config.Configuration, error) {
	v := viper.New()
	config.SetupViper(v, configFileName)
	return config.New(v)
}

func serve(cfg *config.Configuration) error {
	r, err := router.New(cfg)
	if err != nil {
		return err
	}

	handler := router.WithAccessLog(cfg.AccessLog, router.SupportCORS(r))
	server.Listen(cfg, router.NoCache{Handler: handler}, router.Admin(), r.MetricsEngine)

	r.Shutdown()
	return nil
}
