// Package extensions mounts every command family on one router.
package extensions

import (
	"dataplatform/internal/extensions/crypto"
	"dataplatform/internal/extensions/economy"
	"dataplatform/internal/extensions/equity"
	"dataplatform/internal/extensions/news"
	"dataplatform/internal/router"
)

// Families lists the command sets Build mounts.
var Families = []func() []router.Command{
	equity.Commands,
	crypto.Commands,
	news.Commands,
	economy.Commands,
}

// Build returns a frozen router holding every command.
func Build() (*router.Router, error) {
	r := router.New()
	for _, family := range Families {
		for _, c := range family() {
			if err := r.Add(c); err != nil {
				return nil, err
			}
		}
	}
	r.Freeze()
	return r, nil
}
