// Package config provides configuration types and loading for ssh2iot.
//
// # Configuration File
//
// Settings are read from a TOML file, by default
// $XDG_CONFIG_HOME/ssh2iot/config.toml. A missing default file is not an
// error; every key has a default matching the original console tooling:
//
//	region = "us-east-1"
//
//	[tunnel]
//	timeout_minutes = 720
//	service = "ssh"
//
//	[proxy]
//	path = "/usr/local/bin/localproxy"
//
//	[poll]
//	interval = "2s"
//	attempts = 30
//
//	[ssh]
//	user = "root"
//	strict_host_key_checking = false
//	extra_args = "-o ServerAliveInterval=30"
//
//	[agent]
//	endpoint = "abcd123456wxyz-ats.iot.us-east-1.amazonaws.com"
//	client_id = "my-thing"
//	cert = "certs/device.pem.crt"
//	key = "certs/private.pem.key"
//	root_ca = "certs/AmazonRootCA1.pem"
//
//	[agent.services]
//	ssh = "127.0.0.1:22"
//
// Relative agent certificate paths are resolved inside the directory
// holding the config file and may not escape it.
//
// # Validation
//
// Config.Validate covers console settings; AgentConfig.Validate is run by
// the agent command only. Command-line flags override file values and are
// validated with the same helpers (ValidateRegion, ValidateService,
// ValidateTimeout, ValidateThingName).
package config
