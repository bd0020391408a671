package postgresql

// migrations returns the ordered schema migrations. Trigger, conditions and
// actions are serialized JSONB; they are typed in memory and decoded at this
// boundary only.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS workflows (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				active BOOLEAN NOT NULL DEFAULT FALSE,
				trigger JSONB NOT NULL,
				conditions JSONB NOT NULL DEFAULT '[]',
				actions JSONB NOT NULL DEFAULT '[]',
				total_runs BIGINT NOT NULL DEFAULT 0,
				successful_runs BIGINT NOT NULL DEFAULT 0,
				last_run TIMESTAMP WITH TIME ZONE,
				next_run TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE TABLE IF NOT EXISTS leads (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				phone TEXT NOT NULL DEFAULT '',
				email TEXT NOT NULL DEFAULT '',
				channel TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL DEFAULT 'NEW',
				assigned_to TEXT NOT NULL DEFAULT '',
				tags JSONB NOT NULL DEFAULT '[]',
				source TEXT NOT NULL DEFAULT '',
				loan_type TEXT NOT NULL DEFAULT '',
				loan_amount DOUBLE PRECISION NOT NULL DEFAULT 0,
				fields JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_leads_status ON leads (status);

			CREATE TABLE IF NOT EXISTS tasks (
				id TEXT PRIMARY KEY,
				lead_id TEXT NOT NULL,
				title TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				assigned_to TEXT NOT NULL DEFAULT '',
				due_at TIMESTAMP WITH TIME ZONE,
				status TEXT NOT NULL DEFAULT 'OPEN',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE TABLE IF NOT EXISTS messages (
				id TEXT PRIMARY KEY,
				lead_id TEXT NOT NULL,
				channel TEXT NOT NULL,
				direction TEXT NOT NULL,
				content TEXT NOT NULL,
				provider_message_id TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_messages_lead ON messages (lead_id);
		`,
	}
}
