// Package config loads process configuration for the slimerrt commands.
//
// Configuration is stored in slimerrt.json. A .env file next to it and
// SLIMERRT_* environment variables override individual fields; secrets
// such as the client password only ever come from the environment.
//
// # Configuration File Structure
//
//	{
//	  "server": {
//	    "port": 4242,
//	    "network": "udp",
//	    "maxPeers": 8,
//	    "motd": "Welcome to slimerrt!",
//	    "world": {"width": 1024, "height": 1024, "seed": 7}
//	  },
//	  "admin": {"addr": "127.0.0.1:9090"},
//	  "transport": {
//	    "connectTimeout": "5s",
//	    "peerTimeout": "10s",
//	    "pingInterval": "1s"
//	  },
//	  "client": {"host": "localhost", "username": "Sam"},
//	  "archive": {"bucket": "game-logs", "prefix": "prod/", "region": "us-east-1"},
//	  "log": {"level": "info", "format": "text"}
//	}
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.LoadEnv(); err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println("Port:", cfg.Server.Port)
package config
