package replay

import (
	"github.com/HOSH19/BurpSuite-CUA/api/schemas"
	"github.com/HOSH19/BurpSuite-CUA/internal/config"
)

func defaultAgentConfig() config.AgentConfig {
	return config.AgentConfig{
		Language:     schemas.LanguageEnglish,
		Operator:     schemas.OperatorComputer,
		ModelVersion: schemas.ModelV1_0,
		MaxLoopCount: 10,
	}
}
