package config

import (
	"fmt"

	"tools.zach/dev/safesave/internal/migrate"
)

func init() {
	migrate.Config.Register(migrate.Migration{
		Version:     2,
		Description: "save.check_reserved_names -> save.reserved_names",
		Upgrade:     migrate.TOMLTable(2, upgradeReservedNames),
	})
}

// upgradeReservedNames replaces the v1 boolean save.check_reserved_names
// with the v2 policy string. true maps to always, false to never and a
// missing key to auto.
func upgradeReservedNames(doc map[string]any) error {
	save, ok := migrate.Table(doc, "save")
	if !ok {
		return fmt.Errorf("save is not a table")
	}
	old, present := save["check_reserved_names"]
	if !present {
		if _, set := save["reserved_names"]; !set {
			save["reserved_names"] = ReservedAuto
		}
		return nil
	}
	check, ok := old.(bool)
	if !ok {
		return fmt.Errorf("save.check_reserved_names: expected a boolean, got %T", old)
	}
	delete(save, "check_reserved_names")
	if check {
		save["reserved_names"] = ReservedAlways
	} else {
		save["reserved_names"] = ReservedNever
	}
	return nil
}
