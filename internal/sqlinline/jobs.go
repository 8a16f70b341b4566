package sqlinline

const QInsertJob = `--sql 92d8fb72-7298-4443-ba34-b7bb515d0f6c
insert into jobs (
    id, owner_account_id, batch_id, position, kind, input_ref, target_ref, payee_account_id,
    output_ref, status, retry_count, max_retries, failure_code, failure_reason,
    credit_cost, royalty_amount, priority, next_attempt_at, claimed_by, claimed_at,
    cancel_requested, created_at, updated_at, last_retry_at, completed_at
)
values (
    $1::uuid, $2::uuid, $3::uuid, $4::int, $5::text, $6::text, $7::text, nullif($8::text, '')::uuid,
    $9::text, $10::text, $11::int, $12::int, $13::text, $14::text,
    $15::bigint, $16::bigint, $17::int, $18::timestamptz, $19::text, $20::timestamptz,
    $21::boolean, $22::timestamptz, $23::timestamptz, $24::timestamptz, $25::timestamptz
);
`

const QSelectJob = `--sql b77b14c7-51ff-4d1f-83c1-2bc8bf29a090
select id::text, owner_account_id::text, batch_id::text, position, kind, input_ref, target_ref,
       coalesce(payee_account_id::text, ''), output_ref, status, retry_count, max_retries,
       failure_code, failure_reason, credit_cost, royalty_amount, priority, next_attempt_at,
       claimed_by, claimed_at, cancel_requested, created_at, updated_at, last_retry_at, completed_at
from jobs
where id = $1::uuid;
`

const QSelectJobForUpdate = `--sql aabfe403-257a-44ab-9f55-1371582d0bee
select id::text, owner_account_id::text, batch_id::text, position, kind, input_ref, target_ref,
       coalesce(payee_account_id::text, ''), output_ref, status, retry_count, max_retries,
       failure_code, failure_reason, credit_cost, royalty_amount, priority, next_attempt_at,
       claimed_by, claimed_at, cancel_requested, created_at, updated_at, last_retry_at, completed_at
from jobs
where id = $1::uuid
for update;
`

const QUpdateJob = `--sql 2be2e219-4dc0-4f45-b83c-d4428318cf4a
update jobs set
    output_ref = $2::text,
    status = $3::text,
    retry_count = $4::int,
    failure_code = $5::text,
    failure_reason = $6::text,
    next_attempt_at = $7::timestamptz,
    claimed_by = $8::text,
    claimed_at = $9::timestamptz,
    cancel_requested = $10::boolean,
    updated_at = $11::timestamptz,
    last_retry_at = $12::timestamptz,
    completed_at = $13::timestamptz
where id = $1::uuid;
`

// QClaimPendingJob is the claim compare-and-swap: exactly one caller sees a
// returned row for a given pending job.
const QClaimPendingJob = `--sql 5483cbbd-345b-4e6b-96b0-5dd1a6d57570
update jobs
set status = 'processing', claimed_by = $2::text, claimed_at = $3::timestamptz, updated_at = $3::timestamptz
where id = $1::uuid and status = 'pending'
returning id::text, owner_account_id::text, batch_id::text, position, kind, input_ref, target_ref,
       coalesce(payee_account_id::text, ''), output_ref, status, retry_count, max_retries,
       failure_code, failure_reason, credit_cost, royalty_amount, priority, next_attempt_at,
       claimed_by, claimed_at, cancel_requested, created_at, updated_at, last_retry_at, completed_at;
`

const QSelectNextClaimableJob = `--sql aa584ca9-c519-4d06-9b7a-1affe663747c
select id::text, owner_account_id::text, batch_id::text, position, kind, input_ref, target_ref,
       coalesce(payee_account_id::text, ''), output_ref, status, retry_count, max_retries,
       failure_code, failure_reason, credit_cost, royalty_amount, priority, next_attempt_at,
       claimed_by, claimed_at, cancel_requested, created_at, updated_at, last_retry_at, completed_at
from jobs
where batch_id = $1::uuid
  and status = 'pending'
  and next_attempt_at <= $2::timestamptz
order by position asc
limit 1
for update skip locked;
`

const QSelectJobsByBatch = `--sql 238ac6f5-1469-4c91-8357-1577587939a7
select id::text, owner_account_id::text, batch_id::text, position, kind, input_ref, target_ref,
       coalesce(payee_account_id::text, ''), output_ref, status, retry_count, max_retries,
       failure_code, failure_reason, credit_cost, royalty_amount, priority, next_attempt_at,
       claimed_by, claimed_at, cancel_requested, created_at, updated_at, last_retry_at, completed_at
from jobs
where batch_id = $1::uuid
order by position asc;
`

const QCountProcessingJobs = `--sql cd7c0cc1-ca1a-43c5-a74d-ffef4b4f1a7a
select count(*)
from jobs
where status = 'processing'
  and ($1::text = '' or owner_account_id = nullif($1::text, '')::uuid);
`

const QSelectExpiredJobs = `--sql 95932a96-f686-442c-ba06-fd66e4f19065
select id::text, owner_account_id::text, batch_id::text, position, kind, input_ref, target_ref,
       coalesce(payee_account_id::text, ''), output_ref, status, retry_count, max_retries,
       failure_code, failure_reason, credit_cost, royalty_amount, priority, next_attempt_at,
       claimed_by, claimed_at, cancel_requested, created_at, updated_at, last_retry_at, completed_at
from jobs
where status = 'processing'
  and claimed_at < $1::timestamptz
order by claimed_at asc
limit $2::int;
`

// QLockClaimScope takes a transaction-scoped advisory lock keyed by the
// claim scope (an owner id, or the global scope).
const QLockClaimScope = `--sql da94b96d-2218-4486-bc9c-a03996a76341
select pg_advisory_xact_lock(hashtext($1::text));
`
