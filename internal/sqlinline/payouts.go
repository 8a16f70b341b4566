package sqlinline

const QInsertPayoutRequest = `--sql 5ae606bb-dad3-47b0-ad41-33c2cd90c101
insert into payout_requests (
    id, account_id, amount, fee, net_amount, currency, method, account_details, status,
    transaction_ref, notes, failure_reason, created_at, updated_at, processed_at
)
values (
    $1::uuid, $2::uuid, $3::bigint, $4::bigint, $5::bigint, $6::text, $7::text,
    coalesce($8::jsonb, '{}'::jsonb), $9::text, $10::text, $11::text, $12::text,
    $13::timestamptz, $14::timestamptz, $15::timestamptz
);
`

const QSelectPayoutRequest = `--sql 455ba8c2-7bec-4205-bed5-3285e76760f6
select id::text, account_id::text, amount, fee, net_amount, currency, method, account_details,
       status, transaction_ref, notes, failure_reason, created_at, updated_at, processed_at
from payout_requests
where id = $1::uuid;
`

const QSelectPayoutRequestForUpdate = `--sql 72f8514f-b838-4881-8b2f-1065390654b3
select id::text, account_id::text, amount, fee, net_amount, currency, method, account_details,
       status, transaction_ref, notes, failure_reason, created_at, updated_at, processed_at
from payout_requests
where id = $1::uuid
for update;
`

const QUpdatePayoutRequest = `--sql 097517c1-c587-4b1a-8042-01d383b76c78
update payout_requests set
    status = $2::text,
    transaction_ref = $3::text,
    notes = $4::text,
    failure_reason = $5::text,
    updated_at = $6::timestamptz,
    processed_at = $7::timestamptz
where id = $1::uuid;
`

const QSelectPayoutRequestsByAccount = `--sql 71679b9d-1cd4-4283-8ae6-ea7dfcc7c80a
select id::text, account_id::text, amount, fee, net_amount, currency, method, account_details,
       status, transaction_ref, notes, failure_reason, created_at, updated_at, processed_at
from payout_requests
where account_id = $1::uuid
order by created_at desc;
`

const QSumReservedPayouts = `--sql 93d9d0fc-7039-4d2a-9a28-d45ecf2e1f14
select coalesce(sum(amount), 0)::bigint
from payout_requests
where account_id = $1::uuid
  and status in ('pending', 'under_review', 'approved', 'processing');
`

const QInsertPayoutHistory = `--sql 11eab212-19a7-46b6-a331-689222c33822
insert into payout_history (payout_id, position, from_status, to_status, actor_id, reason, country, at)
values ($1::uuid, $2::int, $3::text, $4::text, $5::text, $6::text, $7::text, $8::timestamptz);
`

const QSelectPayoutHistory = `--sql 6349629a-33ab-4c24-857e-a1622bf72d7e
select from_status, to_status, actor_id, reason, country, at
from payout_history
where payout_id = $1::uuid
order by position asc;
`

const QCountPayoutHistory = `--sql c29f8da9-cce7-4de7-9543-580fa5d913d7
select count(*)
from payout_history
where payout_id = $1::uuid;
`
