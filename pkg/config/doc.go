// Package config loads the recipes configuration file.
//
// The file is YAML. Every section is optional; missing values keep the
// defaults returned by Default. A minimal configuration names the database
// and the directories the engine works with:
//
//	store:
//	  path: /var/lib/recipes/recipes.db
//	app_data:
//	  root: /var/lib/recipes/app_data
//	media:
//	  root: /var/lib/recipes/media
//	scheduler:
//	  interval: 2s
//	inbox:
//	  enabled: true
//	  dir: /var/lib/recipes/inbox
//	targets:
//	  - name: production
//	    type: sftp
//	    path: /var/lib/recipes/inbox
//	    ssh:
//	      host: prod.example.com
//	      user: deploy
//	      private_key_path: /etc/recipes/id_ed25519
//	      known_hosts_path: /etc/recipes/known_hosts
//	      strict_host_key_checking: true
//	telemetry:
//	  logging:
//	    level: info
//	    format: json
//
// Environment variables override the file: RECIPES_DB sets store.path and
// RECIPES_LOG_LEVEL sets telemetry.logging.level.
//
// Validation combines struct tags checked by go-playground/validator with
// the semantic checks of each section's own Validate method.
package config
