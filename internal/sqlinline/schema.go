package sqlinline

// SchemaStatements create the service schema. Every statement is idempotent.
var SchemaStatements = []string{
	QCreateExtensionPgcrypto,
	QCreateAccounts,
	QCreateLedgerEntries,
	QCreateBatches,
	QCreateJobs,
	QCreateJobsClaimIndex,
	QCreateJobsLeaseIndex,
	QCreatePayoutRequests,
	QCreatePayoutHistory,
	QCreateProviderCredentials,
}

const QCreateExtensionPgcrypto = `--sql 4c7fa1d3-2a76-49e3-946d-406a493c6c2a
create extension if not exists pgcrypto;
`

const QCreateAccounts = `--sql f21f49fb-db59-491e-bd4a-46bb34b435d5
create table if not exists accounts (
    id uuid primary key,
    user_id text not null,
    role text not null check (role in ('payer', 'payee')),
    balance bigint not null default 0,
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now(),
    unique (user_id, role)
);
`

const QCreateLedgerEntries = `--sql 102db602-283a-486e-9438-c6e49d26d032
create table if not exists ledger_entries (
    seq bigserial primary key,
    id uuid not null unique,
    account_id uuid not null references accounts(id),
    amount bigint not null,
    balance_after bigint not null,
    category text not null,
    job_id uuid,
    batch_id uuid,
    payout_id uuid,
    actor_id text not null default '',
    reason text not null default '',
    idempotency_key text,
    created_at timestamptz not null default now(),
    constraint ledger_entries_idempotency_key_key unique (idempotency_key)
);
`

const QCreateBatches = `--sql 81a6be1a-499d-45e7-8143-dd47843d9d80
create table if not exists batches (
    id uuid primary key,
    owner_account_id uuid not null references accounts(id),
    name text not null default '',
    priority int not null default 0,
    job_ids text[] not null,
    total int not null,
    pending int not null,
    processing int not null default 0,
    completed int not null default 0,
    failed int not null default 0,
    status text not null,
    created_at timestamptz not null,
    updated_at timestamptz not null,
    started_at timestamptz,
    completed_at timestamptz,
    check (pending + processing + completed + failed = total)
);
`

const QCreateJobs = `--sql 00ff92d9-cf6f-4268-9180-73187db53c18
create table if not exists jobs (
    id uuid primary key,
    owner_account_id uuid not null references accounts(id),
    batch_id uuid not null references batches(id),
    position int not null,
    kind text not null,
    input_ref text not null,
    target_ref text not null,
    payee_account_id uuid references accounts(id),
    output_ref text not null default '',
    status text not null,
    retry_count int not null default 0,
    max_retries int not null,
    failure_code text not null default '',
    failure_reason text not null default '',
    credit_cost bigint not null,
    royalty_amount bigint not null default 0,
    priority int not null default 0,
    next_attempt_at timestamptz not null,
    claimed_by text not null default '',
    claimed_at timestamptz,
    cancel_requested boolean not null default false,
    created_at timestamptz not null,
    updated_at timestamptz not null,
    last_retry_at timestamptz,
    completed_at timestamptz
);
`

const QCreateJobsClaimIndex = `--sql 6bed599f-7305-4933-86cf-44575f2b77f7
create index if not exists jobs_batch_pending_idx
    on jobs (batch_id, position)
    where status = 'pending';
`

const QCreateJobsLeaseIndex = `--sql a9892f14-d975-4cd1-bca9-587b4f068dd8
create index if not exists jobs_processing_claimed_idx
    on jobs (claimed_at)
    where status = 'processing';
`

const QCreatePayoutRequests = `--sql 491ecb21-c889-466d-8840-0d330415b3cc
create table if not exists payout_requests (
    id uuid primary key,
    account_id uuid not null references accounts(id),
    amount bigint not null check (amount > 0),
    fee bigint not null default 0,
    net_amount bigint not null,
    currency text not null,
    method text not null,
    account_details jsonb not null default '{}'::jsonb,
    status text not null,
    transaction_ref text not null default '',
    notes text not null default '',
    failure_reason text not null default '',
    created_at timestamptz not null,
    updated_at timestamptz not null,
    processed_at timestamptz
);
`

const QCreatePayoutHistory = `--sql d31eb38d-4090-40dc-a4ff-10035d5ce684
create table if not exists payout_history (
    payout_id uuid not null references payout_requests(id),
    position int not null,
    from_status text not null default '',
    to_status text not null,
    actor_id text not null default '',
    reason text not null default '',
    country text not null default '',
    at timestamptz not null,
    primary key (payout_id, position)
);
`

const QCreateProviderCredentials = `--sql a59b29c2-ab3f-4df1-bff3-f12e5d576de5
create table if not exists provider_credentials (
    provider text primary key,
    api_key text not null,
    base_url text not null default '',
    model text not null default '',
    rotated_by text not null default '',
    rotated_at timestamptz not null default now()
);
`
