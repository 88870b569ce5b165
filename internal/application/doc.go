// Package application provides application initialization and dependency wiring.
// It encapsulates the creation of the session store, handlers, routers, the
// idle-session janitor and the HTTP server instance, keeping the main package
// focused on CLI parsing and orchestration.
package application
