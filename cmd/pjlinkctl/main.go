// Command pjlinkctl loads a list of projectors from a viper config file
// and runs a single command against each.
package main

import (
	"flag"
	"fmt"
	"log"
	"net/netip"
	"os"

	"github.com/naivisoftware/nappjlink/pjlink"
	"github.com/spf13/viper"
)

type projectorConfig struct {
	ID             string `mapstructure:"id"`
	Address        string `mapstructure:"address"`
	ConnectOnStart bool   `mapstructure:"connectOnStart"`
	AllowFailure   bool   `mapstructure:"allowFailure"`
}

func main() {
	configPath := flag.String("config", "testdata/projectors.json", "path to projector list")
	action := flag.String("action", "power-status", "power-on, power-off, or power-status")
	flag.Parse()

	viper.SetConfigFile(*configPath)
	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("reading %s: %v", *configPath, err)
	}

	var cfgs []projectorConfig
	if err := viper.UnmarshalKey("projectors", &cfgs); err != nil {
		log.Fatalf("parsing projector list: %v", err)
	}

	pool := pjlink.NewPool(32)
	pool.Start()
	defer pool.Stop()

	for _, pc := range cfgs {
		addr, err := netip.ParseAddr(pc.Address)
		if err != nil {
			log.Printf("%s: invalid address %q: %v", pc.ID, pc.Address, err)
			continue
		}
		proj, err := pjlink.NewProjector(pjlink.Config{
			ID:             pc.ID,
			Address:        addr,
			ConnectOnStart: pc.ConnectOnStart,
			AllowFailure:   pc.AllowFailure,
		}, pool)
		if err != nil {
			log.Printf("%s: %v", pc.ID, err)
			continue
		}
		if err := proj.Start(); err != nil {
			log.Printf("%s: start failed: %v", pc.ID, err)
			continue
		}
		runAction(proj, *action)
		_ = proj.Stop()
	}
}

func runAction(proj *pjlink.Projector, action string) {
	done := make(chan *pjlink.Command, 1)
	proj.OnResponse(func(c *pjlink.Command) {
		select {
		case done <- c:
		default:
		}
	})

	var cmd *pjlink.Command
	var err error
	switch action {
	case "power-on":
		cmd, err = proj.PowerOn()
	case "power-off":
		cmd, err = proj.PowerOff()
	case "power-status":
		cmd, err = proj.Get("POWR")
	default:
		fmt.Fprintf(os.Stderr, "unknown action %q\n", action)
		return
	}
	if err != nil {
		log.Printf("send failed: %v", err)
		return
	}

	cmd = <-done

	if cmd.Err() != nil {
		log.Printf("command failed: %v", cmd.Err())
		return
	}
	payload, _ := cmd.Payload()
	fmt.Printf("%s: %s -> %s\n", action, cmd.Body(), payload)
}
