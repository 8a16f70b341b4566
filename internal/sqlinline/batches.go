package sqlinline

const QInsertBatch = `--sql 37f3ac73-9a67-406f-a3ec-cc24030e0a4f
insert into batches (
    id, owner_account_id, name, priority, job_ids, total, pending, processing, completed, failed,
    status, created_at, updated_at, started_at, completed_at
)
values (
    $1::uuid, $2::uuid, $3::text, $4::int, $5::text[], $6::int, $7::int, $8::int, $9::int, $10::int,
    $11::text, $12::timestamptz, $13::timestamptz, $14::timestamptz, $15::timestamptz
);
`

const QSelectBatch = `--sql 561dcd95-5c65-4f8f-b920-ebc8f6db170d
select id::text, owner_account_id::text, name, priority, job_ids, total, pending, processing,
       completed, failed, status, created_at, updated_at, started_at, completed_at
from batches
where id = $1::uuid;
`

const QSelectBatchForUpdate = `--sql fe49db3f-01ba-4493-ae42-e72e82261c3d
select id::text, owner_account_id::text, name, priority, job_ids, total, pending, processing,
       completed, failed, status, created_at, updated_at, started_at, completed_at
from batches
where id = $1::uuid
for update;
`

const QUpdateBatch = `--sql 433cf96f-cf5b-4eb2-bf70-0842df77401e
update batches set
    pending = $2::int,
    processing = $3::int,
    completed = $4::int,
    failed = $5::int,
    status = $6::text,
    updated_at = $7::timestamptz,
    started_at = $8::timestamptz,
    completed_at = $9::timestamptz
where id = $1::uuid;
`

const QSelectEligibleBatches = `--sql 3303ee18-43bb-43a7-94ef-31a7360e98bb
select b.id::text, b.owner_account_id::text, b.name, b.priority, b.job_ids, b.total, b.pending,
       b.processing, b.completed, b.failed, b.status, b.created_at, b.updated_at, b.started_at, b.completed_at
from batches b
where b.pending > 0
  and exists (
      select 1
      from jobs j
      where j.batch_id = b.id
        and j.status = 'pending'
        and j.next_attempt_at <= $1::timestamptz
  )
order by b.priority desc, b.created_at asc, b.id asc
limit $2::int;
`
