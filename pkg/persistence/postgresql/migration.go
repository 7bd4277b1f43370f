package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Catalog: services, action definitions, areas, action instances and links.
			-- The engine only reads these tables.
			CREATE TABLE services (
				id VARCHAR(255) PRIMARY KEY,
				key VARCHAR(255) NOT NULL UNIQUE,
				name VARCHAR(255) NOT NULL,
				auth_type VARCHAR(50) NOT NULL DEFAULT 'NONE',
				enabled BOOLEAN NOT NULL DEFAULT true
			);

			CREATE TABLE action_definitions (
				id VARCHAR(255) PRIMARY KEY,
				service_id VARCHAR(255) NOT NULL REFERENCES services(id) ON DELETE CASCADE,
				key VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				description TEXT,
				input_schema JSONB,
				output_schema JSONB,
				is_event_capable BOOLEAN NOT NULL DEFAULT false,
				is_executable BOOLEAN NOT NULL DEFAULT false,
				version INT NOT NULL DEFAULT 1,
				default_poll_interval_seconds INT,
				throttle_policy JSONB,
				UNIQUE (service_id, key, version)
			);

			CREATE TABLE areas (
				id VARCHAR(255) PRIMARY KEY,
				user_id VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				enabled BOOLEAN NOT NULL DEFAULT true,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_areas_user_id ON areas(user_id);

			CREATE TABLE action_instances (
				id VARCHAR(255) PRIMARY KEY,
				user_id VARCHAR(255) NOT NULL,
				area_id VARCHAR(255) NOT NULL REFERENCES areas(id) ON DELETE CASCADE,
				action_definition_id VARCHAR(255) NOT NULL REFERENCES action_definitions(id),
				name VARCHAR(255) NOT NULL,
				enabled BOOLEAN NOT NULL DEFAULT true,
				params JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_action_instances_area_id ON action_instances(area_id);

			CREATE TABLE action_links (
				source_action_instance_id VARCHAR(255) NOT NULL REFERENCES action_instances(id) ON DELETE CASCADE,
				target_action_instance_id VARCHAR(255) NOT NULL REFERENCES action_instances(id) ON DELETE CASCADE,
				area_id VARCHAR(255) NOT NULL REFERENCES areas(id) ON DELETE CASCADE,
				link_type VARCHAR(50) NOT NULL DEFAULT 'chain'
					CHECK (link_type IN ('chain', 'conditional', 'parallel', 'sequential')),
				mapping JSONB,
				link_condition JSONB,
				link_order INT NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				PRIMARY KEY (source_action_instance_id, target_action_instance_id)
			);

			CREATE INDEX idx_action_links_area_id ON action_links(area_id);
		`,
		2: `
			-- Execution records, owned by the engine and never deleted by it.
			CREATE TABLE executions (
				id VARCHAR(255) PRIMARY KEY,
				correlation_id VARCHAR(255) NOT NULL,
				dedup_key VARCHAR(255),
				action_instance_id VARCHAR(255) NOT NULL REFERENCES action_instances(id),
				area_id VARCHAR(255) NOT NULL,
				activation_mode VARCHAR(50) NOT NULL,
				status VARCHAR(50) NOT NULL
					CHECK (status IN ('QUEUED', 'RUNNING', 'OK', 'RETRY', 'FAILED', 'CANCELED')),
				attempt INT NOT NULL DEFAULT 0 CHECK (attempt >= 0),
				chain_depth INT NOT NULL DEFAULT 0,
				input_payload JSONB,
				output_payload JSONB,
				error_details JSONB,
				queued_at TIMESTAMP WITH TIME ZONE NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE,
				finished_at TIMESTAMP WITH TIME ZONE,
				next_retry_at TIMESTAMP WITH TIME ZONE,
				version BIGINT NOT NULL DEFAULT 1,
				CONSTRAINT executions_finished_at_terminal
					CHECK ((finished_at IS NOT NULL) = (status IN ('OK', 'FAILED', 'CANCELED'))),
				CONSTRAINT executions_next_retry_at_retry
					CHECK ((next_retry_at IS NOT NULL) = (status = 'RETRY'))
			);

			CREATE INDEX idx_executions_status_queued_at ON executions(status, queued_at);
			CREATE INDEX idx_executions_status_next_retry_at ON executions(status, next_retry_at);
			CREATE INDEX idx_executions_status_started_at ON executions(status, started_at);
			CREATE INDEX idx_executions_correlation_id ON executions(correlation_id);
			CREATE INDEX idx_executions_action_instance_id ON executions(action_instance_id);
			CREATE UNIQUE INDEX idx_executions_dedup_key ON executions(dedup_key) WHERE dedup_key IS NOT NULL;
		`,
	}
}
