// Package config provides engine configuration from environment variables
// and the declarative authorization policy from a YAML file.
//
// # Environment
//
// Authorization settings:
//
//	GRANTOR_PERMISSIONS_ENABLED="true"
//	GRANTOR_SHARING_ENABLED="true"
//	GRANTOR_POLICY_PATH="/etc/grantor/policy.yaml"
//	GRANTOR_POLICY_WATCH="true"
//	GRANTOR_IDENTITY_CACHE_SIZE="1024"
//	GRANTOR_IDENTITY_CACHE_TTL="1m"
//
// Database settings:
//
//	GRANTOR_DATABASE_DRIVER="postgres"  # postgres, sqlite3
//	GRANTOR_DATABASE_URL="postgres://localhost/grantor"
//	GRANTOR_DATABASE_REPLICA_URLS="postgres://replica-1/grantor,postgres://replica-2/grantor"
//	GRANTOR_DATABASE_MAX_CONNS="20"
//	GRANTOR_DATABASE_AUTO_MIGRATE="true"
//
// Cache settings:
//
//	GRANTOR_CACHE_TYPE="redis"  # memory, redis
//	GRANTOR_CACHE_SIZE="1024"
//	GRANTOR_CACHE_TTL="10m"
//	GRANTOR_REDIS_URL="redis://localhost:6379"
//	GRANTOR_REDIS_NAMESPACE="grantor"
//
// Observability settings:
//
//	GRANTOR_LOG_LEVEL="info"  # debug, info, warn, error
//	GRANTOR_METRICS_ENABLED="true"
//	GRANTOR_OTEL_ENABLED="true"
//	GRANTOR_OTEL_ENDPOINT="otel-collector:4317"
//
// # Policy
//
//	permissions:
//	  - type: Post
//	    operations: [view, edit, delete]
//	    aliases: {read: view}
//	    fields:
//	      title: {operations: [view, edit]}
//	  - type: Comment
//	    operations: [view, edit]
//	    master: post
//	    master_field_mapping: {edit: edit}
//	associations:
//	  - {class: Comment, property: post, target: Post}
//	sharing:
//	  subjects:
//	    - {type: Post, visibility: private}
//	  identities:
//	    - {type: User, alias: user, permissible: true}
//	    - {type: Role, alias: role, roleable: true}
//	role_hierarchy:
//	  ROLE_ADMIN: [ROLE_EDITOR]
//	  ROLE_EDITOR: [ROLE_USER]
//	special_roles: [ROLE_EVERYONE]
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//	policy, err := config.LoadPolicy(cfg.Authorization.PolicyPath)
//	if err != nil {
//		log.Fatal(err)
//	}
package config
