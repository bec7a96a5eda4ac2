package sqlinline

// QEnsureSchema creates the tables the service owns when they are missing.
const QEnsureSchema = `--sql c00ef72a-5372-4473-9b90-f56235038226
create table if not exists users (
    id text primary key,
    google_sub text not null unique,
    email text not null,
    stripe_customer_id text unique,
    created_at timestamptz not null default now()
);

create table if not exists renders (
    id text primary key,
    user_id text references users(id),
    style_phrase text not null,
    model_key text not null,
    base_prompt text not null,
    image_path text not null default '',
    thumb_path text not null default '',
    input_image_path text,
    status text not null default 'pending',
    cost_credits integer not null default 1 check (cost_credits >= 0),
    render_metadata jsonb not null default '{}'::jsonb,
    stripe_event_id text,
    created_at timestamptz not null default now(),
    constraint renders_status_check check (status in ('pending', 'done', 'failed')),
    constraint renders_done_paths check (status <> 'done' or (image_path <> '' and thumb_path <> ''))
);

create index if not exists renders_status_idx on renders (status);
create index if not exists renders_style_phrase_idx on renders (style_phrase);
create index if not exists renders_model_key_idx on renders (model_key);

create table if not exists integration_tokens (
    id uuid primary key default gen_random_uuid(),
    provider text not null unique,
    token text not null,
    properties jsonb not null default '{}'::jsonb,
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now()
);
`
