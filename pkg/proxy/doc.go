/*
Package proxy flips public traffic between the two deployment colors.

The Traffic Switch renders a per-color nginx routing config, validates it,
and applies it with nginx's reload primitive. Reload, not restart: nginx
re-reads configuration and drains old workers, so established connections
are never dropped by a cutover.

# Switch Sequence

	SwitchTo(green)
	  1. render routing config pointing at green's backend port
	  2. write it temp-file-then-rename over the live conf
	  3. validate   ("nginx -t")      ── fail ⇒ restore previous conf
	  4. reload     ("nginx -s reload") ─ fail ⇒ restore previous conf
	  5. done; Verify probes the PUBLIC route before state is committed

The rendered config stamps every response with the X-Cutover-Color header.
Verify requires a 2xx through the public URL and, when the header is
present, that it names the expected color; a custom template without the
header downgrades verification to status-only with a logged warning.

# Custom Templates

Operators front stacks with their own nginx layouts by pointing
TemplatePath at a template receiving Color, Port, ListenPort, ServerName,
BackendHost, and ColorHeader. Keeping the "color: <name>" marker comment
lets Active read back the routed color; keeping the header keeps Verify
strict.
*/
package proxy
