// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package builtin

// RegisterAll adds all builtins to the registry.
func RegisterAll(r *Registry) {
	r.Register(&Bg{})
	r.Register(&Cd{})
	r.Register(&Exit{})
	r.Register(&Fg{})
	r.Register(&Help{})
	r.Register(&Jobs{})
}
