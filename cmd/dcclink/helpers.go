package main

import (
	"fmt"

	"dcclink/client"
	"dcclink/config"
	"dcclink/dcc"
)

// dialClient builds a client from cfg and connects it to an explicit port,
// a named application, or whichever known port answers first.
func dialClient(cfg *config.Config, appFlag string, portFlag int) (*client.Client, error) {
	c := client.New(
		client.WithBasePort(cfg.BasePort),
		client.WithTimeout(cfg.Timeout()),
	)

	switch {
	case portFlag > 0:
		if err := c.ConnectPort(portFlag); err != nil {
			return nil, err
		}
	case appFlag != "":
		app := dcc.App(appFlag)
		if !dcc.Valid(app) && app != dcc.Standalone {
			return nil, fmt.Errorf("unknown application %q", appFlag)
		}
		if err := c.Connect(app); err != nil {
			return nil, err
		}
	default:
		if err := c.ConnectAddrless(); err != nil {
			return nil, err
		}
	}
	return c, nil
}
