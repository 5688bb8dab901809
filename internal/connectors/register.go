// Package connectors declares the ingestion jobs of the platform and
// registers them with the connector runtime.
package connectors

import "github.com/vthamada/territorial-intelligence-platform-sub001/internal/connector"

// Definitions lists the tabular connectors in registration order.
var Definitions = []connector.Definition{
	INEPCensoEscolar,
	DATASUSCNES,
	SENATRANFrota,
	SICONFIFinbra,
	INPEQueimadas,
	TSEElectorate,
	TSEElectionResults,
	MDSCadUnico,
	MDSCensoSUAS,
}

func init() {
	connector.Register(AdminBootstrap)
	for _, d := range Definitions {
		connector.Register(d.Job())
	}
}
