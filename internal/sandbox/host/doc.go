/*
Package host is the sandbox host controller.

# Overview

The controller owns at most one isolated context per logical slot. Mounting
generates the mode's sandbox document, registers it in a revocable
DocumentStore and asks a Factory for a fresh isolated context loaded from it.
Every command reaches the context as a protocol message; the controller
never touches a context's internals.

# Channel

EstablishChannel creates a fresh port pair and hands one end to the context
with INIT_PORT. Until READY_SIGNAL arrives on the private port, events the
context broadcasts on the bus are delivered instead. After the handshake the
broadcast subscription is drained once and cancelled, so only one path is
live per context generation.

# Usage

	ctrl := host.New(host.Options{
		Generator: template.New(),
		Factory:   host.RuntimeFactory{Logger: logger},
		Documents: host.NewDocumentStore(),
		Bus:       channel.NewBus(),
		Sink:      func(h *host.Handle, msg protocol.Message) { ... },
	})

	h, err := ctrl.Mount(ctx, "preview", mode.Express)
	ctrl.EstablishChannel(h)
	ctrl.SetTheme(h, protocol.Dark)
	ctrl.Run(h, code)
	ctrl.SimulateRequest(h, "GET", "/users/7")
	ctrl.Teardown(h)

The Sink runs on the handle's pump goroutine. It must not call back into the
controller for the same handle synchronously.
*/
package host
