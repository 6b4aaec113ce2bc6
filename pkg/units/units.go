package units

import (
	"jeev/pkg/unit"
	"jeev/pkg/units/ask"
	"jeev/pkg/units/decide"
	"jeev/pkg/units/periodic"
	"jeev/pkg/units/ping"
	"jeev/pkg/units/sed"
	"jeev/pkg/units/webstore"
)

// coreUnits is the definitive list of units compiled into the jeev binary.
var coreUnits = []unit.Definition{
	ping.Unit,
	decide.Unit,
	sed.Unit,
	periodic.Unit,
	webstore.Unit,
	ask.Unit,
}

// Catalog returns a fresh catalog of the compiled-in units.
func Catalog() *unit.Catalog {
	return unit.NewCatalog(coreUnits...)
}
