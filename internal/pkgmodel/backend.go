package pkgmodel

// BackendID identifies a package-manager backend. Flatpak is named in spec
// §1/§2 as a backend this model must stay uniform over, but its
// implementation is an external collaborator (out of scope, spec §1) — the
// constant exists so instructions and state can still reference it.
type BackendID string

const (
	BackendArch    BackendID = "arch"
	BackendDebian  BackendID = "debian"
	BackendFlatpak BackendID = "flatpak"
)

// UserRef is a uid or a symbolic user name, resolved through the external
// passwd/sysusers collaborator when symbolic (spec §3 invariant (b), §6).
type UserRef struct {
	UID  *uint32
	Name string
}

// GroupRef is a gid or a symbolic group name.
type GroupRef struct {
	GID  *uint32
	Name string
}
