package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS workflows (
				id TEXT PRIMARY KEY,
				workflow_group_id TEXT NOT NULL,
				project_id TEXT NOT NULL,
				name TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL,
				version INTEGER NOT NULL DEFAULT 1,
				nodes JSONB NOT NULL DEFAULT '[]',
				connections JSONB NOT NULL DEFAULT '[]',
				variables JSONB,
				is_active BOOLEAN NOT NULL DEFAULT FALSE,
				owner TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				published_at TIMESTAMP WITH TIME ZONE,
				archived_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX IF NOT EXISTS idx_workflows_group
				ON workflows (workflow_group_id, version);
			CREATE INDEX IF NOT EXISTS idx_workflows_project_status
				ON workflows (project_id, status);

			CREATE TABLE IF NOT EXISTS automation_rules (
				id TEXT PRIMARY KEY,
				project_id TEXT NOT NULL,
				name TEXT NOT NULL,
				trigger_type TEXT NOT NULL,
				trigger_config JSONB,
				conditions JSONB,
				actions JSONB NOT NULL DEFAULT '[]',
				status TEXT NOT NULL,
				execution_count BIGINT NOT NULL DEFAULT 0,
				success_count BIGINT NOT NULL DEFAULT 0,
				last_error TEXT NOT NULL DEFAULT '',
				last_run_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_rules_trigger_status
				ON automation_rules (trigger_type, status);

			CREATE TABLE IF NOT EXISTS executions (
				id TEXT PRIMARY KEY,
				workflow_id TEXT,
				rule_id TEXT,
				project_id TEXT NOT NULL DEFAULT '',
				trigger_event TEXT NOT NULL DEFAULT '',
				context JSONB,
				status TEXT NOT NULL,
				log JSONB NOT NULL DEFAULT '[]',
				current_node_id TEXT NOT NULL DEFAULT '',
				steps INTEGER NOT NULL DEFAULT 0,
				retry_count INTEGER NOT NULL DEFAULT 0,
				max_retries INTEGER NOT NULL DEFAULT 0,
				next_wake_at TIMESTAMP WITH TIME ZONE,
				approval JSONB,
				worker_id TEXT NOT NULL DEFAULT '',
				result JSONB,
				error_message TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE,
				finished_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX IF NOT EXISTS idx_executions_workflow_status
				ON executions (workflow_id, status);
			CREATE INDEX IF NOT EXISTS idx_executions_wake
				ON executions (status, next_wake_at)
				WHERE next_wake_at IS NOT NULL;

			CREATE TABLE IF NOT EXISTS templates (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				category TEXT NOT NULL DEFAULT '',
				description TEXT NOT NULL DEFAULT '',
				nodes JSONB NOT NULL DEFAULT '[]',
				connections JSONB NOT NULL DEFAULT '[]',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE IF NOT EXISTS trigger_schedules (
				id TEXT PRIMARY KEY,
				workflow_id TEXT NOT NULL,
				cron_expression TEXT NOT NULL,
				next_due_at TIMESTAMP WITH TIME ZONE NOT NULL,
				active BOOLEAN NOT NULL DEFAULT TRUE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_schedules_due
				ON trigger_schedules (active, next_due_at);
		`,
	}
}
