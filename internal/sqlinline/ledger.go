package sqlinline

const QInsertLedgerEntry = `--sql f220a764-744f-4931-a531-2450f03c0e30
insert into ledger_entries (
    id, account_id, amount, balance_after, category,
    job_id, batch_id, payout_id, actor_id, reason, idempotency_key, created_at
)
values (
    $1::uuid, $2::uuid, $3::bigint, $4::bigint, $5::text,
    nullif($6::text, '')::uuid, nullif($7::text, '')::uuid, nullif($8::text, '')::uuid,
    $9::text, $10::text, nullif($11::text, ''), $12::timestamptz
)
returning seq;
`

const QSelectLedgerEntryByKey = `--sql d68c64ac-1a36-4ac5-8a83-8d6e03090797
select seq, id::text, account_id::text, amount, balance_after, category,
       coalesce(job_id::text, ''), coalesce(batch_id::text, ''), coalesce(payout_id::text, ''),
       actor_id, reason, coalesce(idempotency_key, ''), created_at
from ledger_entries
where idempotency_key = $1::text;
`

const QSelectLedgerEntriesByAccount = `--sql f3ae5af7-8198-447d-b6df-cf8ec06f254d
select seq, id::text, account_id::text, amount, balance_after, category,
       coalesce(job_id::text, ''), coalesce(batch_id::text, ''), coalesce(payout_id::text, ''),
       actor_id, reason, coalesce(idempotency_key, ''), created_at
from ledger_entries
where account_id = $1::uuid
order by seq asc;
`
