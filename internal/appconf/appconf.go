package appconf

// Environment describes which mode the process is running in. The test
// environment forces the database into memory so test runs never touch disk.
type Environment int

const (
	Development Environment = iota
	Test
	Production
)

func (e Environment) String() string {
	switch e {
	case Test:
		return "test"
	case Production:
		return "production"
	default:
		return "development"
	}
}

// EnvFromString maps an environment name from configuration to an
// Environment value. Unknown names fall back to development.
func EnvFromString(name string) Environment {
	switch name {
	case "test":
		return Test
	case "production":
		return Production
	default:
		return Development
	}
}
