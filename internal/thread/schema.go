package thread

const Schema = `
CREATE TABLE IF NOT EXISTS threads (
	thread_id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL DEFAULT '',
	language TEXT NOT NULL DEFAULT 'en',
	turn_count INTEGER NOT NULL DEFAULT 0,
	stage TEXT NOT NULL DEFAULT 'init',
	memory_pointer INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_threads_user ON threads(user_id);

CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	thread_id TEXT NOT NULL,
	turn_index INTEGER NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	token_count INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(thread_id, turn_index, role)
);
CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_id, turn_index);

CREATE TABLE IF NOT EXISTS summaries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	thread_id TEXT NOT NULL,
	start_turn INTEGER NOT NULL,
	end_turn INTEGER NOT NULL,
	text TEXT NOT NULL,
	token_count INTEGER NOT NULL DEFAULT 0,
	level INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(thread_id, start_turn)
);
CREATE INDEX IF NOT EXISTS idx_summaries_thread ON summaries(thread_id, start_turn);

CREATE TABLE IF NOT EXISTS entities (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	thread_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	value TEXT NOT NULL,
	confidence REAL NOT NULL DEFAULT 0.5,
	turn_index INTEGER NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_entities_thread ON entities(thread_id, turn_index);
CREATE INDEX IF NOT EXISTS idx_entities_kind ON entities(thread_id, kind);
`
