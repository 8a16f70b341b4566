package sqlinline

const QInsertAccount = `--sql 00c9696d-0f90-4d5a-a7cc-f9b29aaf222d
insert into accounts (id, user_id, role, balance, created_at, updated_at)
values ($1::uuid, $2::text, $3::text, $4::bigint, $5::timestamptz, $6::timestamptz);
`

const QSelectAccount = `--sql 23a1877a-7dd3-49a3-84be-a0c02565e616
select id::text, user_id, role, balance, created_at, updated_at
from accounts
where id = $1::uuid;
`

const QSelectAccountForUpdate = `--sql 5207442d-29db-4c80-8971-86791f0988bf
select id::text, user_id, role, balance, created_at, updated_at
from accounts
where id = $1::uuid
for update;
`

const QUpdateAccountBalance = `--sql faa1a7af-7f82-4494-9247-c78257993375
update accounts
set balance = $2::bigint, updated_at = $3::timestamptz
where id = $1::uuid;
`
