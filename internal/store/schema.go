package store

const schema = `
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;
PRAGMA foreign_keys = ON;

-- Summary: one row per ingested filing
CREATE TABLE IF NOT EXISTS summary (
    name TEXT PRIMARY KEY,             -- section table name
    ticker TEXT NOT NULL,
    category TEXT NOT NULL,            -- 10-K, 10-Q, ...
    filing_date TEXT NOT NULL,         -- YYYY-MM-DD
    source_path TEXT NOT NULL,         -- one file may back several filings
    total_pages INTEGER NOT NULL DEFAULT 0,
    sections_indexed INTEGER NOT NULL DEFAULT 0,
    sections_failed INTEGER NOT NULL DEFAULT 0,
    ingested_at TEXT NOT NULL          -- RFC 3339
);

CREATE INDEX IF NOT EXISTS idx_summary_ticker ON summary(ticker);

-- Ticker documents: per-ticker view of summary with whole-filing drift
-- against the next year's filing of the same category
CREATE TABLE IF NOT EXISTS ticker_documents (
    name TEXT PRIMARY KEY,
    ticker TEXT NOT NULL,
    category TEXT NOT NULL,
    filing_date TEXT NOT NULL,
    compared_with TEXT,
    cosine_similarity REAL,
    jaccard_similarity REAL,
    min_edit_distance INTEGER,
    FOREIGN KEY (name) REFERENCES summary(name) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_ticker_documents_ticker ON ticker_documents(ticker, filing_date);
`

// sectionTableDDL is formatted with a validated, quoted table name.
const sectionTableDDL = `
CREATE TABLE IF NOT EXISTS %s (
    section TEXT PRIMARY KEY,
    position INTEGER NOT NULL,
    nesting_level INTEGER NOT NULL,
    start_page INTEGER NOT NULL,
    end_page INTEGER NOT NULL,
    page_text TEXT NOT NULL,           -- JSON array, one string per page
    section_text TEXT NOT NULL,        -- normalized tokens
    cosine_similarity REAL,
    jaccard_similarity REAL,
    min_edit_distance INTEGER
)`
