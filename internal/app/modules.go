package app

import (
	"github.com/vk/flowloop/internal/registry"
	"github.com/vk/flowloop/modules/basic"
	"github.com/vk/flowloop/modules/env"
	"github.com/vk/flowloop/modules/script"
	"github.com/vk/flowloop/modules/socketio"
	"github.com/vk/flowloop/modules/text"
)

// coreModules is the definitive list of all modules that are compiled into
// the flowloop binary.
var coreModules = []registry.Module{
	&basic.Module{},
	&text.Module{},
	&script.Module{},
	&env.Module{},
	&socketio.Module{},
}
