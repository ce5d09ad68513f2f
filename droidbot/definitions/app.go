package definitions

// App describes the installed application under automation.
type App struct {
	Path     string `json:"path"`
	Package  string `json:"package"`
	Activity string `json:"activity,omitempty"`
}

// Component returns the package/activity target understood by am start -n.
func (a App) Component() string {
	if a.Activity == "" {
		return a.Package
	}
	return a.Package + "/" + a.Activity
}
