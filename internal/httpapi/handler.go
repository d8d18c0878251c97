package httpapi

// handler holds every dependency the route functions close over. It
// has no exported surface; NewRouter is the package's only entrypoint.
type handler struct {
	deps Deps
}
