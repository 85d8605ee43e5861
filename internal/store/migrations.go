package store

const schema = `
CREATE TABLE IF NOT EXISTS cities (
    id           INTEGER PRIMARY KEY,
    name         TEXT NOT NULL,
    region       TEXT NOT NULL DEFAULT '',
    country      TEXT NOT NULL DEFAULT 'France',
    subreddits   TEXT NOT NULL DEFAULT '[]',
    feeds        TEXT NOT NULL DEFAULT '[]',
    pages        TEXT NOT NULL DEFAULT '[]',
    is_active    BOOLEAN NOT NULL DEFAULT 1,
    created_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS places (
    id              TEXT PRIMARY KEY,
    city_id         INTEGER NOT NULL REFERENCES cities(id),
    name            TEXT NOT NULL,
    category        TEXT NOT NULL DEFAULT '',
    subcategory     TEXT NOT NULL DEFAULT '',
    address         TEXT,
    arrondissement  TEXT NOT NULL DEFAULT '',
    price_level     INTEGER NOT NULL DEFAULT 0,
    michelin_stars  INTEGER NOT NULL DEFAULT 0,
    gem_alerted_at  DATETIME,
    created_at      DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_places_city ON places(city_id);
CREATE INDEX IF NOT EXISTS idx_places_name ON places(city_id, name COLLATE NOCASE);

CREATE TABLE IF NOT EXISTS mentions (
    id              TEXT PRIMARY KEY,
    place_id        TEXT NOT NULL REFERENCES places(id),
    source_type     TEXT NOT NULL,
    source_url      TEXT NOT NULL DEFAULT '',
    mention_text    TEXT NOT NULL DEFAULT '',
    mention_date    DATETIME NOT NULL,
    is_local_author BOOLEAN NOT NULL DEFAULT 0,
    sentiment_score REAL NOT NULL DEFAULT 0,
    created_at      DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_mentions_place_date ON mentions(place_id, mention_date);

CREATE TABLE IF NOT EXISTS gem_scores (
    id                 INTEGER PRIMARY KEY AUTOINCREMENT,
    place_id           TEXT NOT NULL REFERENCES places(id),
    score_date         TEXT NOT NULL,
    hidden_gem_score   REAL NOT NULL DEFAULT 0,
    authenticity_score REAL NOT NULL DEFAULT 0,
    trending_score     REAL,
    tourism_saturation REAL NOT NULL DEFAULT 0,
    local_mentions_7d  INTEGER NOT NULL DEFAULT 0,
    UNIQUE(place_id, score_date)
);

CREATE INDEX IF NOT EXISTS idx_gem_scores_date ON gem_scores(score_date);
`
