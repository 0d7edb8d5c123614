package pinsrv

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	dnslog "github.com/brutella/dnssd/log"
	"github.com/brutella/hap"
	"github.com/brutella/hap/accessory"
	hklog "github.com/brutella/hap/log"
	"github.com/pkg/errors"
)

const defaultHomeKitDirectory = "./homekit"
const homeKitBridgeName = "pinsrv"
const homeKitBridgeAuthor = "github.com/hubertat"
const homeKitSyncInterval = 2 * time.Second

// accessory ids start at 2; the bridge itself takes 1
const hkAccessoryIdOffset = 2

type pinAccessory struct {
	index int
	sw    *accessory.Switch
}

func (kit *Kit) getHkAccessories(firmwareVersion string) (acc []*accessory.A, pinAccs []*pinAccessory) {
	for _, st := range kit.registry.States() {
		sw := accessory.NewSwitch(accessory.Info{
			Name:         st.Name,
			Manufacturer: homeKitBridgeAuthor,
			SerialNumber: fmt.Sprintf("pin:gpio:%02d", st.Offset),
			Firmware:     firmwareVersion,
		})
		sw.A.Id = hkAccessoryIdOffset + uint64(st.Index)
		sw.Switch.On.SetValue(st.Value == "1")

		index := st.Index
		sw.Switch.On.OnValueRemoteUpdate(func(on bool) {
			state := 0
			if on {
				state = 1
			}
			kit.registry.SetValue(index, state)
		})

		acc = append(acc, sw.A)
		pinAccs = append(pinAccs, &pinAccessory{index: index, sw: sw})
	}

	return
}

func (kit *Kit) syncHomeKit(pinAccs []*pinAccessory) {
	states := kit.registry.States()
	for _, pa := range pinAccs {
		if pa.index < len(states) {
			pa.sw.Switch.On.SetValue(states[pa.index].Value == "1")
		}
	}
}

// StartHomeKit publishes every bound pin as a HomeKit switch behind a
// bridge accessory and blocks until ctx is cancelled or a signal
// arrives. Remote switch updates write through the registry; a ticker
// keeps HomeKit in step with writes arriving over HTTP or MQTT.
func (kit *Kit) StartHomeKit(ctx context.Context, firmwareVersion string) error {
	hkConfig := kit.Config.HomeKit
	if hkConfig == nil || len(hkConfig.Pin) != 8 {
		return errors.New("homekit pin not configured (8 digits required)")
	}

	bridge := accessory.NewBridge(accessory.Info{
		Name:         homeKitBridgeName,
		Manufacturer: homeKitBridgeAuthor,
		Firmware:     firmwareVersion,
	})

	var store hap.Store
	if len(hkConfig.Directory) > 1 {
		store = hap.NewFsStore(hkConfig.Directory)
	} else {
		store = hap.NewFsStore(defaultHomeKitDirectory)
	}

	accessories, pinAccs := kit.getHkAccessories(firmwareVersion)
	hkServer, err := hap.NewServer(store, bridge.A, accessories...)
	if err != nil {
		return errors.Wrap(err, "failed to create HomeKit server")
	}
	hkServer.Pin = hkConfig.Pin
	if len(hkConfig.Address) > 0 {
		hkServer.Addr = hkConfig.Address
	}

	if hkConfig.Debug {
		hklog.Debug.Enable()
		dnslog.Debug.Enable()
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	signal.Notify(c, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		<-c
		// Stop delivering signals.
		signal.Stop(c)
		// Cancel the context to stop the server.
		cancel()
	}()

	go func() {
		ticker := time.NewTicker(homeKitSyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				kit.syncHomeKit(pinAccs)
			}
		}
	}()

	return hkServer.ListenAndServe(ctx)
}
