package main

import (
	"context"
	"log"
	"os"

	charmlog "github.com/charmbracelet/log"

	"github.com/hubertat/pinsrv"
	"github.com/hubertat/pinsrv/drivers"
)

var (
	Version string
	Build   string
)

func main() {
	log.Println("pinsrv started")
	log.Println("mock instance for testing purposes, should work off-target")

	charmlog.SetLevel(charmlog.DebugLevel)

	cfg := &pinsrv.Config{
		Main: pinsrv.MainConfig{Debug: true, Port: 8080},
		Gpio: pinsrv.GpioConfig{
			Driver: "mock",
			Pins:   []int{17, 22, 27},
			Names:  []string{"relay", "fan", "relay"},
		},
	}

	kit := pinsrv.NewKit(cfg)

	log.Println("will init mock driver...")
	err := kit.InitDriver(context.Background())
	defer kit.Close()
	if err != nil {
		panic(err)
	}

	log.Println("will bind pins...")
	err = kit.BindPins()
	if err != nil {
		panic(err)
	}

	if mock, ok := kit.Driver().(*drivers.MockIoDriver); ok {
		mock.MonitorStateChanges(os.Stdout)
	}

	kit.PrintIoStatus(os.Stdout)

	log.Printf("listening on :%d\n", cfg.Main.Port)
	log.Fatal(kit.ListenAndServe())
}
