package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	charmlog "github.com/charmbracelet/log"
	"github.com/hubertat/servicemaker"

	"github.com/hubertat/pinsrv"
)

var (
	Version string
	Build   string

	config      = flag.String("config", "config.toml", "path of the configuration file")
	flagInstall = flag.Bool("install", false, "Install service in os")

	pinService = servicemaker.ServiceMaker{
		User:               "pinsrv",
		UserGroups:         []string{"gpio"},
		ServicePath:        "/etc/systemd/system/pinsrv.service",
		ServiceDescription: "pinsrv service: plain-text HTTP control surface for GPIO output pins. github.com/hubertat/pinsrv",
		ExecDir:            "/srv/pinsrv",
		ExecName:           "pinsrv",
	}
)

func main() {
	log.Printf("pinsrv %s started\n", Version)
	flag.Parse()

	if *flagInstall {
		err := pinService.InstallService()
		if err != nil {
			panic(err)
		}
		log.Println("service installed!")
		return
	}

	cfg, err := pinsrv.LoadConfig(*config)
	if err != nil {
		log.Fatalf("can't load config file (%s), will terminate. Reason: \n%v\n", *config, err)
	}

	if cfg.Main.Debug {
		charmlog.SetLevel(charmlog.DebugLevel)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	kit := pinsrv.NewKit(cfg)

	log.Println("will init gpio driver...")
	err = kit.InitDriver(ctx)
	defer kit.Close()
	if err != nil {
		panic(err)
	}

	log.Println("will bind pins...")
	err = kit.BindPins()
	if err != nil {
		panic(err)
	}

	kit.PrintIoStatus(os.Stdout)

	if cfg.Mqtt != nil {
		err = kit.StartMqtt(ctx)
		if err != nil {
			log.Printf("mqtt bridge not started: %v\n", err)
		} else {
			log.Println("mqtt bridge OK!")
		}
	}

	if cfg.Influx != nil {
		err = kit.StartInflux(ctx)
		if err != nil {
			log.Printf("influx recorder not started: %v\n", err)
		} else {
			log.Println("influx recorder OK!")
		}
	}

	if cfg.HomeKit != nil && len(cfg.HomeKit.Pin) == 8 {
		log.Println("starting HomeKit bridge")
		go func() {
			hkErr := kit.StartHomeKit(ctx, Version)
			if hkErr != nil {
				log.Printf("HomeKit bridge stopped: %v\n", hkErr)
			}
		}()
	} else {
		log.Println("HomeKit not configured, disabled")
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		signal.Stop(c)
		cancel()
		kit.Shutdown()
	}()

	log.Printf("listening on :%d\n", cfg.Main.Port)
	err = kit.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
	log.Println("shutting down, releasing gpio lines")
}
